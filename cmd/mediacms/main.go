package main

import (
	"mediacms/cmd/handlers"
	"mediacms/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
