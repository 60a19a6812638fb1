package chronicles

import (
	"context"
	"time"
)

// PendingBackup is the handle returned by BackupAsync.
type PendingBackup struct {
	done   chan struct{}
	result *PostResult
	err    error
}

// BackupAsync starts a Backup without blocking the caller. The upload runs
// exactly as Backup would, including the file check before the request;
// its outcome is collected with Wait. Cancel ctx to abort the request.
func (c *Client) BackupAsync(ctx context.Context, loggerTypeCode, loggerSerial string, timestamp time.Time, filePath string) *PendingBackup {
	p := &PendingBackup{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.result, p.err = c.Backup(ctx, loggerTypeCode, loggerSerial, timestamp, filePath)
	}()
	return p
}

// Done is closed once the backup has finished.
func (p *PendingBackup) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the backup has finished and returns what Backup would
// have returned.
func (p *PendingBackup) Wait() (*PostResult, error) {
	<-p.done
	return p.result, p.err
}

// WaitContext is like Wait but gives up when ctx is done. The upload itself
// keeps running under the context it was started with.
func (p *PendingBackup) WaitContext(ctx context.Context) (*PostResult, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
