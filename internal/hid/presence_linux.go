// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

//go:build linux

package hid

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// watchNative watches /dev/bus/usb for filesystem churn and nudges
// reconcile whenever it sees one, so a hotplug arrival/removal is picked
// up well inside one polling interval instead of waiting for the next
// backed-off tick.
//
// Grounded on
// _examples/Hyper-Int-OrcaBot/sandbox/internal/drivesync/watcher.go's
// fsnotify.NewWatcher/AddWatch/event-loop shape.
func watchNative(stop <-chan struct{}, reconcile chan<- struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[hid] presence: fsnotify unavailable, polling only: %v", err)
		return
	}
	defer watcher.Close()

	const usbBusDir = "/dev/bus/usb"
	if err := watcher.Add(usbBusDir); err != nil {
		log.Printf("[hid] presence: could not watch %s, polling only: %v", usbBusDir, err)
		return
	}

	for {
		select {
		case <-stop:
			return
		case _, ok := <-watcher.Events:
			if !ok {
				return
			}
			select {
			case reconcile <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[hid] presence watcher error: %v", err)
		}
	}
}
