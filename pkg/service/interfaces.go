package service

import (
	"github.com/binwiederhier/ntfy-android-sub001/pkg/distributor"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/ingest"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/store"
)

// Compile-time checks that the concrete types satisfy the ports they
// are wired into.
var (
	_ ingest.Store         = (*store.Store)(nil)
	_ distributor.Store    = (*store.Store)(nil)
	_ distributor.Streamer = (*Service)(nil)
)
