package main

import (
	"github.com/smmpanel/panelsync/internal/config"
	"github.com/smmpanel/panelsync/internal/server"
)

func main() {
	config.MustLoad()
	server.StartService()
}
