// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("🔄 lifesync - Google Calendar/Tasks Synchronization Engine")
	fmt.Println("==========================================================")
	fmt.Println()
	fmt.Println("lifesync keeps a personal task manager in sync with Google Calendar and")
	fmt.Println("Google Tasks: OAuth token lifecycle, import/export orchestration, retry")
	fmt.Println("of failed operations and an append-only sync audit log.")
	fmt.Println()

	fmt.Println("📚 Getting Started:")
	fmt.Println()
	fmt.Println("1. 🌐 Run the sync daemon (cmd/lifesyncd/)")
	fmt.Println("   HTTP API over chi with JWT-authenticated endpoints")
	fmt.Println("   Set GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_REDIRECT_URL, JWT_SECRET")
	fmt.Println("   Run: go run ./cmd/lifesyncd")
	fmt.Println()

	fmt.Println("2. 🗄️  Pick a store")
	fmt.Println("   DATABASE_URL      - Postgres via pgx (multi-user deployments)")
	fmt.Println("   SQLITE_FILE       - embedded SQLite (single-user mode, the default)")
	fmt.Println()

	fmt.Println("3. 📦 Use the engine as a library (syncengine/)")
	fmt.Println("   ImportFromGoogle, ExportNewTask, RetryFailedOperations, GetSyncStatus")
	fmt.Println()
}
