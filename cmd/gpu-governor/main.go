package main

import (
	"github.com/Tools-cx-app/gpu-governor/internal/server"
)

func main() {
	server.Run()
}
