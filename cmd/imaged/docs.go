package main

// General API documentation for swaggo. Regenerate with
// `swag init -g cmd/imaged/docs.go`.
//
// @title           imaged API
// @version         1.0
// @description     HTTP API for diffusion image generation with bounded-concurrency admission.
//
// @contact.name   imaged maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
//
// @BasePath  /
//
// @schemes http
