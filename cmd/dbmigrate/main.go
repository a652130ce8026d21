package main

import "github.com/baderkha/db-migrate/cmd/dbmigrate/command"

func main() {
	command.Execute()
}
