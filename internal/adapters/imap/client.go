package imap

import (
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
)

// Client is the subset of the go-imap client the adapter drives.
// *client.Client satisfies it.
type Client interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Create(name string) error
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	UidMove(seqset *imap.SeqSet, dest string) error
	Logout() error
}

// Dial connects and authenticates to the configured IMAP server. SASL PLAIN
// is used when the server advertises it, LOGIN otherwise.
func Dial(cfg config.IMAPConfig, logger *zap.Logger) (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)
	if cfg.TLS {
		c, err = client.DialTLS(cfg.Address, nil)
	} else {
		c, err = client.Dial(cfg.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", cfg.Address, err)
	}

	ok, err := c.SupportAuth(sasl.Plain)
	if err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to query IMAP capabilities: %w", err)
	}

	if ok {
		err = c.Authenticate(sasl.NewPlainClient("", cfg.Username, cfg.Password))
	} else {
		err = c.Login(cfg.Username, cfg.Password)
	}
	if err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to authenticate as %s: %w", cfg.Username, err)
	}

	logger.Info("Connected to IMAP server",
		zap.String("address", cfg.Address),
		zap.String("username", cfg.Username),
		zap.Bool("sasl_plain", ok))
	return c, nil
}
