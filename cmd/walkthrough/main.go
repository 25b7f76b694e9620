// Command walkthrough drives the recurring invoice template wizard end to
// end in a real browser and reports pass/fail through its exit code.
package main

func main() {
	Execute()
}
