package server

//go:generate swag init -g internal/server/server.go -o internal/server/docs

// @title Nexus API
// @version 0.1
// @description File threat scoring, GRC risk aggregation and scan jobs.
// @contact.name Nexus Maintainers
// @contact.url https://github.com/raysh454/nexus
// @BasePath /
