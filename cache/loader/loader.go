// Package loader registers cache drivers via blank imports.
// Import this package to ensure the default cache drivers are available.
//
// Usage:
//
//	import _ "github.com/flowcraft-app/flowcraft-go/cache/loader"
package loader

import (
	// Register the memory cache driver
	_ "github.com/flowcraft-app/flowcraft-go/cache/memory"

	// Register the valkey cache driver
	_ "github.com/flowcraft-app/flowcraft-go/cache/valkey"
)
