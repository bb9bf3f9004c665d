package types

// ErrorResponse is the JSON error envelope used by all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// ModelInfo is one entry of the model listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the OpenAI-style listing envelope.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// PoolStatus describes one routed model pool.
type PoolStatus struct {
	Model   string `json:"model"`
	Kind    string `json:"kind"`
	Workers int    `json:"workers"`
	Busy    int    `json:"busy"`
}

// StatusResponse is a read-only projection of the serving state.
type StatusResponse struct {
	State string       `json:"state"`
	Pools []PoolStatus `json:"pools"`
}
