package main

import "github.com/ValentinKolb/xkv/cmd"

func main() {
	cmd.Execute()
}
