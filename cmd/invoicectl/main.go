// Command invoicectl extracts, organizes and summarizes PDF invoices.
package main

func main() {
	Execute()
}
