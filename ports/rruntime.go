package ports

import "context"

// RRuntime executes R code in a foreign process. Data crosses the boundary as
// CSV: the script reads its input from stdin and writes its result to stdout.
type RRuntime interface {
	// Version returns the runtime version, failing when R is not reachable
	Version(ctx context.Context) (string, error)

	// HasPackage reports whether an R package can be loaded
	HasPackage(ctx context.Context, pkg string) (bool, error)

	// Eval runs script with stdin attached and returns stdout
	Eval(ctx context.Context, script string, stdin []byte) ([]byte, error)
}
