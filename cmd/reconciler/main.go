package main

import "deposit-reconciler/cmd/reconciler/cmd"

// @title Deposit Reconciler Ops API
// @version 1.0
// @description Internal operations API of the TRC20/BEP20 deposit reconciler
// @BasePath /
func main() {
	cmd.Execute()
}
