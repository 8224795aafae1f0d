package main

// General API documentation for swaggo. Run `swag init -g cmd/personad/docs.go -o internal/docs` to regenerate.
//
// @title           personad API
// @version         1.0
// @description     Persona chat over a base model with hot-swapped LoRA adapters.
//
// @contact.name   personad maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
