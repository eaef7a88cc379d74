package main

import (
	"fmt"
	"os"
	"time"

	bilisentry "github.com/bililive-go/datachange/src/pkg/sentry"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	// 程序退出时刷新 Sentry 事件队列
	defer bilisentry.Flush(2 * time.Second)
	defer bilisentry.Recover()

	c := newCLI(os.Stdout)
	if _, err := c.app.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}
