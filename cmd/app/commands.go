package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/application"
	"github.com/PerkOS-xyz/UniPerk/internal/ccip"
	"github.com/PerkOS-xyz/UniPerk/internal/ethsig"
	"github.com/PerkOS-xyz/UniPerk/internal/policy"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"
)

func jsonFlag() *cli.BoolFlag {
	return &cli.BoolFlag{Name: "json", Usage: "print raw JSON"}
}

func walletKeyFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "wallet-key", Usage: "hex key of the wallet that owns the name", Sources: cli.EnvVars("UNIPERK_WALLET_KEY")}
}

func serverFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "server", Usage: "gateway base URL; defaults to the configured server"}
}

// clientConfig loads the saved CLI config and applies --server when given.
func clientConfig(c *cli.Command) (cliConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, err
	}
	if s := c.String("server"); s != "" {
		cfg.Server = s
		cfg.Transport = transportHTTP
	}
	return cfg, nil
}

func signerCommand() *cli.Command {
	return &cli.Command{
		Name:  "signer",
		Usage: "Inspect signing keys",
		Commands: []*cli.Command{
			{
				Name:  "address",
				Usage: "Print the address of a gateway signing key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "private-key", Sources: cli.EnvVars("UNIPERK_PRIVATE_KEY", "PRIVATE_KEY")},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					signer, err := ccip.NewSigner(c.String("private-key"), ccip.DefaultTTL)
					if err != nil {
						return err
					}
					fmt.Println(signer.Address().Hex())
					return nil
				},
			},
			{
				Name:      "sign-message",
				Usage:     "Produce an EIP-191 signature of MESSAGE with a wallet key",
				ArgsUsage: "MESSAGE",
				Flags:     []cli.Flag{walletKeyFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					msg := c.Args().First()
					if msg == "" {
						return errors.New("message is required")
					}
					key, err := parsePrivateKey(c.String("wallet-key"))
					if err != nil {
						return err
					}
					sig, err := ethsig.SignMessage(key, msg)
					if err != nil {
						return err
					}
					printKV([][2]string{
						{"address", crypto.PubkeyToAddress(key.PublicKey).Hex()},
						{"message", msg},
						{"signature", sig},
					})
					return nil
				},
			},
		},
	}
}

func namesCommand() *cli.Command {
	return &cli.Command{
		Name:  "names",
		Usage: "Browse and claim subdomains",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List registered names",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: application.DefaultListLimit},
					&cli.IntFlag{Name: "offset"},
					serverFlag(),
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out nameList
					if err := doNamesList(ctx, cfg, int(c.Int("limit")), int(c.Int("offset")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printNames(out)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show a name's records",
				ArgsUsage: "NAME",
				Flags:     []cli.Flag{serverFlag(), jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					name := c.Args().First()
					if name == "" {
						return errors.New("name is required")
					}
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					var out nameDetails
					if err := doNamesShow(ctx, cfg, name, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printNameDetails(out)
					return nil
				},
			},
			{
				Name:      "owner",
				Usage:     "Print the name owned by ADDRESS",
				ArgsUsage: "ADDRESS",
				Flags:     []cli.Flag{serverFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					name, err := doNamesOwner(ctx, cfg, c.Args().First())
					if err != nil {
						return err
					}
					if name == "" {
						fmt.Println("no name")
						return nil
					}
					fmt.Println(name)
					return nil
				},
			},
			{
				Name:      "claim",
				Usage:     "Claim LABEL under the parent domain with a wallet key",
				ArgsUsage: "LABEL",
				Flags: []cli.Flag{
					walletKeyFlag(),
					&cli.StringFlag{Name: "parent", Value: "uniperk.eth"},
					serverFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					label := strings.ToLower(c.Args().First())
					if label == "" {
						return errors.New("label is required")
					}
					key, err := parsePrivateKey(c.String("wallet-key"))
					if err != nil {
						return err
					}
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					res, err := doClaim(ctx, cfg.Server, key, label, c.String("parent"))
					if err != nil {
						return err
					}
					fmt.Printf("claimed %s\n", res.Name)
					return nil
				},
			},
		},
	}
}

func policyCommand() *cli.Command {
	return &cli.Command{
		Name:  "policy",
		Usage: "Inspect and change agent trading permissions",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show the policy derived from a name's records",
				ArgsUsage: "NAME",
				Flags:     []cli.Flag{serverFlag(), jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					p, err := doPolicyShow(ctx, cfg, c.Args().First())
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(p)
					}
					printPolicy(p)
					return nil
				},
			},
			{
				Name:      "check",
				Usage:     "Check whether a trade is permitted for NAME",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Required: true, Usage: "token sold"},
					&cli.StringFlag{Name: "to", Required: true, Usage: "token bought"},
					&cli.StringFlag{Name: "amount", Required: true, Usage: "trade size in the policy unit"},
					serverFlag(),
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					name := c.Args().First()
					if name == "" {
						return errors.New("name is required")
					}
					amount, err := decimal.NewFromString(c.String("amount"))
					if err != nil {
						return fmt.Errorf("invalid amount: %w", err)
					}
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					d, err := doPolicyCheck(ctx, cfg, name, policy.TradeRequest{
						FromToken: c.String("from"),
						ToToken:   c.String("to"),
						Amount:    amount,
					})
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(d)
					}
					printDecision(d)
					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "Change NAME's permissions, signed by the owning wallet",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					walletKeyFlag(),
					&cli.StringFlag{Name: "allowed", Usage: "true or false"},
					&cli.StringFlag{Name: "max-trade"},
					&cli.StringFlag{Name: "tokens", Usage: "comma-separated symbols"},
					&cli.StringFlag{Name: "slippage", Usage: "basis points"},
					&cli.StringFlag{Name: "expires", Usage: "unix seconds"},
					serverFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					name := c.Args().First()
					if name == "" {
						return errors.New("name is required")
					}
					patch, err := patchFromFlags(c)
					if err != nil {
						return err
					}
					key, err := parsePrivateKey(c.String("wallet-key"))
					if err != nil {
						return err
					}
					cfg, err := clientConfig(c)
					if err != nil {
						return err
					}
					if _, err := doUpdatePermissions(ctx, cfg.Server, key, name, patch); err != nil {
						return err
					}
					fmt.Printf("updated %s\n", name)
					return nil
				},
			},
		},
	}
}

func patchFromFlags(c *cli.Command) (application.PermissionsPatch, error) {
	var patch application.PermissionsPatch
	if c.IsSet("allowed") {
		switch strings.ToLower(c.String("allowed")) {
		case "true":
			v := true
			patch.Allowed = &v
		case "false":
			v := false
			patch.Allowed = &v
		default:
			return patch, errors.New("--allowed must be true or false")
		}
	}
	str := func(flag string) *string {
		if !c.IsSet(flag) {
			return nil
		}
		v := c.String(flag)
		return &v
	}
	patch.MaxTrade = str("max-trade")
	patch.Tokens = str("tokens")
	patch.Slippage = str("slippage")
	patch.Expires = str("expires")
	if len(patch.Texts()) == 0 {
		return patch, errors.New("set at least one permission flag")
	}
	return patch, nil
}

func lookupCommand() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Resolve NAME through the gateway and verify the signed answer",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "function", Value: ccip.FuncAddr, Usage: "addr, text or contenthash"},
			&cli.StringFlag{Name: "key", Usage: "text record key"},
			&cli.StringFlag{Name: "coin-type", Usage: "SLIP-44 coin type for addr"},
			&cli.StringFlag{Name: "sender", Value: common.Address{}.Hex(), Usage: "resolver contract address"},
			&cli.StringFlag{Name: "signer", Usage: "expected gateway signer; enables verification"},
			serverFlag(),
			jsonFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			name := strings.ToLower(c.Args().First())
			if name == "" {
				return errors.New("name is required")
			}
			q, err := queryFromFlags(c, name)
			if err != nil {
				return err
			}
			if !ethsig.IsAddress(c.String("sender")) {
				return errors.New("--sender must be a 0x address")
			}
			var expected *common.Address
			if s := c.String("signer"); s != "" {
				if !ethsig.IsAddress(s) {
					return errors.New("--signer must be a 0x address")
				}
				addr := common.HexToAddress(s)
				expected = &addr
			}
			cfg, err := clientConfig(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
			defer cancel()
			res, err := doLookup(ctx, cfg.Server, common.HexToAddress(c.String("sender")), name, q, expected)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(res)
			}
			printLookup(res)
			return nil
		},
	}
}

func queryFromFlags(c *cli.Command, name string) (ccip.Query, error) {
	node := ccip.Namehash(name)
	switch c.String("function") {
	case ccip.FuncAddr:
		raw := c.String("coin-type")
		if raw == "" {
			return ccip.AddrQuery(node), nil
		}
		coinType, ok := new(big.Int).SetString(raw, 10)
		if !ok || coinType.Sign() < 0 {
			return ccip.Query{}, fmt.Errorf("invalid coin type %q", raw)
		}
		return ccip.AddrCoinQuery(node, coinType), nil
	case ccip.FuncText:
		if c.String("key") == "" {
			return ccip.Query{}, errors.New("--key is required for text lookups")
		}
		return ccip.TextQuery(node, c.String("key")), nil
	case ccip.FuncContenthash:
		return ccip.ContenthashQuery(node), nil
	default:
		return ccip.Query{}, fmt.Errorf("unsupported function %q", c.String("function"))
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage CLI connection settings",
		Commands: []*cli.Command{
			{
				Name: "show",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					return printJSON(cfg)
				},
			},
			{
				Name: "set",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Usage: "uds or http"},
					&cli.StringFlag{Name: "server"},
					&cli.StringFlag{Name: "socket"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if c.IsSet("transport") {
						cfg.Transport = c.String("transport")
					}
					if c.IsSet("server") {
						cfg.Server = c.String("server")
					}
					if c.IsSet("socket") {
						cfg.Socket = c.String("socket")
					}
					if err := saveConfig(cfg); err != nil {
						return err
					}
					return printJSON(cfg)
				},
			},
		},
	}
}
