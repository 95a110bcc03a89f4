package main

import (
	"context"
	"fmt"

	"github.com/projectsmartedu/SmartEducation-sub001/core/deadline"
	"github.com/projectsmartedu/SmartEducation-sub001/core/notify"
	"github.com/projectsmartedu/SmartEducation-sub001/services/realtime"
)

// scan runs one deadline scan. Alerts are logged, and published on Redis when redis.addr is set.
func (cli *commandLine) scan() error {
	st, err := cli.getStore()
	if err != nil {
		return err
	}

	notifiers := notify.Fanout{notify.LogNotifier{Logger: cli.logger}}
	if cli.conf.Redis.Addr != "" {
		bus, err := realtime.NewRedisBus(cli.conf, cli.logger)
		if err != nil {
			return err
		}
		defer func() { _ = bus.Close() }()
		notifiers = append(notifiers, bus)
	}

	res, err := deadline.NewScanner(cli.conf, st.revisions, notifiers, cli.logger).Scan(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "scanned: %d, alerts: %d, raced: %d, failed: %d, dispatch failures: %d\n",
		res.Scanned, res.Alerts, res.Raced, res.Failed, res.DispatchFailures)
	return nil
}
