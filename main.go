package main

import "github.com/octofacehub/octoface/cmd"

func main() {
	cmd.Execute()
}
