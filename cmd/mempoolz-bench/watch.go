package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watchWorkload loads path once synchronously, then watches it for writes
// and reloads cfg's fields in place on every change. Recognized lines are
// "iterations <n>" and "size <n>"; unrecognized lines are ignored.
func watchWorkload(path string, cfg *workloadConfig) (stop func(), err error) {
	if err := loadWorkload(path, cfg); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	done := make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				if err := loadWorkload(path, cfg); err != nil {
					log.Printf("mempoolz-bench: reload %s: %v", path, err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}

				log.Printf("mempoolz-bench: watch %s: %v", path, err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		w.Close()
	}, nil
}

func loadWorkload(path string, cfg *workloadConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}

		n, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}

		switch fields[0] {
		case "iterations":
			cfg.iterations.Store(int64(n))
		case "size":
			cfg.allocSize.Store(uint32(n))
		}
	}

	return sc.Err()
}
