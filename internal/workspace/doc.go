// Package workspace manages scratch directories for sync cycles.
//
// Each cycle gets its own directory (e.g., cfgsync-20251214-122336-1234567) under
// the scratch root and removes it when the cycle ends. Prune removes directories
// left behind by a crashed process.
package workspace
