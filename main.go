package main

import "sortly/internal/app"

func main() {
	app.Main()
}
