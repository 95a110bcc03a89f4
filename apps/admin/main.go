package main

import (
	"log"
	"os"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	logsvc "github.com/projectsmartedu/SmartEducation-sub001/services/logger"
)

func main() {
	conf := core.NewConfig()

	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)

	// start CLI
	cli := newCommandLine(conf, logger, os.Stdout)
	defer cli.close()
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		cli.close()
		os.Exit(1)
	}
}
