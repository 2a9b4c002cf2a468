package main

import "github.com/MeKo-Tech/meterread/cmd/meterread/cmd"

func main() {
	cmd.Execute()
}
