package main

import "github.com/tanpmqe180124/pickleboom-sub000/cmd"

func main() {
	cmd.Execute()
}
