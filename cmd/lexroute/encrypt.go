package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
)

// runEncrypt prints an "enc:" value for the config file. The secret comes
// from the argument or, when absent, the first line of stdin.
func runEncrypt(args []string, stdin io.Reader, stdout io.Writer) error {
	var c common
	fs := newFlagSet("encrypt", &c)
	if ok, err := parse(fs, args); !ok {
		return err
	}

	passphrase := os.Getenv(config.PassphraseEnv)
	if passphrase == "" {
		return domain.NewDomainError("cli.encrypt", domain.ErrInvalidInput,
			config.PassphraseEnv+" must hold the passphrase")
	}

	secret := fs.Arg(0)
	if secret == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		return domain.NewDomainError("cli.encrypt", domain.ErrInvalidInput, "nothing to encrypt")
	}

	enc, err := config.EncryptValue(secret, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "enc:"+enc)
	return nil
}
