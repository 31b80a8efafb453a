package aws

import "github.com/emptyset-io/cloudsweep/scanner"

// Register adds every built-in AWS scanner to the registry.
func Register(registry *scanner.Registry) {
	registry.Register(NewVolumeScanner())
	registry.Register(NewSnapshotScanner())
	registry.Register(NewInstanceScanner())
	registry.Register(NewAddressScanner())
	registry.Register(NewSecurityGroupScanner())
	registry.Register(NewLoadBalancerScanner())
	registry.Register(NewDatabaseScanner())
	registry.Register(NewTableScanner())
	registry.Register(NewBucketScanner())
	registry.Register(NewRoleScanner())
	registry.Register(NewUserScanner())
}

// DefaultRegistry returns a registry with every built-in scanner registered.
func DefaultRegistry() *scanner.Registry {
	registry := scanner.NewRegistry()
	Register(registry)
	return registry
}
