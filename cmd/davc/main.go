package main

import (
	"context"
	"log"
	"os"

	"github.com/davgo/webdav/cmd/davc/cmd"
)

func main() {
	if err := cmd.NewRoot().ExecuteContext(context.Background()); err != nil {
		log.Printf("exec cmd failed, err:%v", err)
		os.Exit(1)
	}
}
