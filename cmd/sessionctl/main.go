package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/broadcast"
	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/pipeline"
	"github.com/jrsteele09/go-auth-client/renew"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("sessionctl failed")
	}
}

func run(args []string) error {
	c := config.New()
	displayAppname(c.GetAppName())

	service, httpClient, err := buildService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx := context.Background()
	service.Bootstrap(ctx)

	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "login":
		if len(args) != 3 {
			printUsage()
			return nil
		}
		if result := service.Login(ctx, args[1], args[2]); result == nil {
			fmt.Printf("Login failed: %s\n", service.State().Error)
			return nil
		}
		printSession(service.State())

	case "whoami":
		printSession(service.State())

	case "refresh":
		token, err := service.EnsureFreshToken(ctx)
		if err != nil {
			fmt.Printf("Renewal failed: %v\n", err)
			return nil
		}
		fmt.Printf("Renewed access token: %s\n", token)

	case "get":
		if len(args) != 2 {
			printUsage()
			return nil
		}
		resp, err := httpClient.Get(args[1])
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			return nil
		}
		defer resp.Body.Close()
		fmt.Printf("%s\n", resp.Status)
		_, _ = io.Copy(os.Stdout, resp.Body)
		fmt.Println()

	case "logout":
		service.Logout(ctx)
		fmt.Println("Signed out.")

	default:
		printUsage()
	}
	return nil
}

func buildService(c config.Config) (*auth.Service, *http.Client, error) {
	creds, err := credstore.NewFileRepo(c.GetDataFolder())
	if err != nil {
		return nil, nil, err
	}

	client, err := identity.NewClient(
		c.GetIdentityBaseURL(),
		identity.WithPaths(c.GetLoginPath(), c.GetRenewPath(), c.GetRevokePath()),
	)
	if err != nil {
		return nil, nil, err
	}

	state := session.NewStore()
	events := broadcast.NewLogoutEmitter()

	coordinator, err := renew.NewCoordinator(client, creds, state, events)
	if err != nil {
		return nil, nil, err
	}

	service, err := auth.NewService(
		auth.Repos{Credentials: creds, Identity: client},
		state,
		coordinator,
		events,
		auth.WithLoginTimeout(c.GetLoginTimeout()),
	)
	if err != nil {
		return nil, nil, err
	}

	transport, err := pipeline.NewTransport(nil, state, coordinator)
	if err != nil {
		return nil, nil, err
	}

	return service, &http.Client{Transport: transport}, nil
}

func printSession(s session.Session) {
	if !s.IsAuthenticated {
		fmt.Println("Not signed in.")
		return
	}
	fmt.Printf("Signed in as %s", s.User.DisplayName())
	if role := s.User.Role(); role != "" {
		fmt.Printf(" (%s)", role)
	}
	fmt.Println()
}

func printUsage() {
	fmt.Println("Usage: sessionctl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  login <email> <password>   Sign in against the identity server")
	fmt.Println("  whoami                     Show the current session")
	fmt.Println("  refresh                    Force an access-token renewal")
	fmt.Println("  get <url>                  Authenticated GET through the request pipeline")
	fmt.Println("  logout                     Revoke and clear the session")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
