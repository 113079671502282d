// Command normalize reads a flat resource, factors repeated field groups out
// into dimension tables with stable surrogate ids, and writes the fact and
// dimension tables to a database.
package main

func main() {
	Execute()
}
