package main

import (
	"fmt"

	_ "github.com/agentuity/go-cache/cache"
	_ "github.com/agentuity/go-cache/config"
	_ "github.com/agentuity/go-cache/logger"
	_ "github.com/agentuity/go-cache/memcache"
	_ "github.com/agentuity/go-cache/pool"
)

func main() {
	fmt.Println("Hi")
}
