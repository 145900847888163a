package main

// API metadata for swaggo. Regenerate the served spec with `swag init`
// and build with -tags=swagger to expose it.
//
// @title           inferd API
// @version         1.0
// @description     HTTP API for scheduling inference on locally hosted LLMs.
//
// @contact.name   inferd maintainers
// @contact.url    https://github.com/your-org/inferd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
