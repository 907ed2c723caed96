// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package client

import (
	"log"
	"os"
	"os/exec"
	"path/filepath"
)

const daemonBinName = "agentdeckd"

// trySpawnDaemon attempts to launch the daemon binary from the same
// directory as the running executable, falling back to PATH, detached
// from this process.
//
// Grounded on
// _examples/original_source/crates/agentdeck/src/daemon_client.rs's
// try_spawn_daemon.
func trySpawnDaemon(addr string) bool {
	bin := daemonBinName
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), daemonBinName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			bin = candidate
		}
	}

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(), "AGENTDECK_LISTEN="+addr)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		log.Printf("[client] failed to spawn daemon: %v", err)
		return false
	}
	log.Printf("[client] spawned daemon pid=%d", cmd.Process.Pid)
	return true
}
