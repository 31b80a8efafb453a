// Cloudsweep - multi-account unused resource scanner.
// Assume. Scan. Report.
package main

func main() {
	Execute()
}
