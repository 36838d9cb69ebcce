// Package recorder turns solves into decision records and writes them to
// storage on a background goroutine.
//
// Record never blocks on storage. When the buffer stays full for the write
// timeout the record is dropped, the optional OnDrop hook runs and a
// RecorderError wrapping decisionlog.ErrBufferFull is returned. Close drains
// everything already queued.
//
// Request fields named in Config.RedactFields are replaced before storage;
// RequestHash is computed from the unredacted request so identical requests
// still correlate.
package recorder
