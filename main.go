package main

import "github.com/BruceJL/mysql-json-bridge/cmd/bridge"

func main() {
	bridge.Main()
}
