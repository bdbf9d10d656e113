// Command search-crawler runs the frontier crawler and the query API.
package main

import "github.com/JakeFAU/realtime-search-crawler/cmd"

func main() {
	cmd.Execute()
}
