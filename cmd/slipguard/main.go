// Command slipguard scans payment slips and chat text for scam signals.
package main

func main() {
	exitOnError(Execute())
}
