// Package process supervises the CEC adapter daemon when the bridge runs it
// as a child process.
//
// The adapter daemon owns the kernel CEC device and exposes the framed
// socket that internal/cec connects to. A Supervisor starts it, waits for
// the socket to accept connections, restarts it with backoff when it exits,
// and kills it when the readiness probe keeps failing (a hung daemon still
// holds the device but answers nobody).
//
// Example usage:
//
//	sup, err := process.New(process.Config{
//	    Name:   "cec-adapterd",
//	    Binary: "/usr/bin/cec-adapterd",
//	    Args:   []string{"--device", "/dev/cec0"},
//	    Probe: func(ctx context.Context) error {
//	        return cec.Probe(ctx, "unix:///run/cec-adapter.sock")
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
