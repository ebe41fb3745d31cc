// Command hashpw reads a password from stdin and prints the bcrypt hash to
// paste into the users file (AUDIT_USERS_FILE).
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"clinicaudit/internal/auth"
)

func main() {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(os.Stderr, "usage: echo 'password' | hashpw")
		os.Exit(2)
	}
	hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
