package main

// General API documentation for swaggo. Run `swag init -g cmd/llmserverd/docs.go`
// to regenerate docs.
//
// @title           llmserverd API
// @version         1.0
// @description     HTTP API serving chat completion and audio transcription from local model workers.
//
// @contact.name   llmserverd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
