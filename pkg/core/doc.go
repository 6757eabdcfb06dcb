// Package core defines the shared language of the leapcalc system.
//
// This package contains:
//   - Path and Structure, the ordered tree of quantities exchanged with engines
//   - JSONTree, the order-preserving serialized form of a Structure
//   - PathFilter for glob selection of paths
//   - The CalculationEngine contract and its optional extensions
//
// The Golden Rule: pkg/core imports ONLY pkg/units and stdlib.
// All other packages depend on core, not the reverse.
package core
