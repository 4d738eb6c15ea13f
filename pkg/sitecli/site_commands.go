package sitecli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sitekit/sitekit/pkg/query"
	"github.com/sitekit/sitekit/pkg/sites"
)

func newCreateCommand() *Command {
	cmd := &Command{
		Name:        "create",
		Description: "Create a new site",
		Flags:       flag.NewFlagSet("create", flag.ExitOnError),
	}

	as := cmd.Flags.String("as", "", "Acting user")
	name := cmd.Flags.String("name", "", "Site short name")
	title := cmd.Flags.String("title", "", "Site title")
	description := cmd.Flags.String("description", "", "Site description")
	preset := cmd.Flags.String("preset", "", "Layout preset identifier")
	visibility := cmd.Flags.String("visibility", "PRIVATE", "Visibility: PUBLIC, MODERATED or PRIVATE")

	cmd.Run = func(args []string) error {
		cmd.Flags.Parse(args)
		ctx, err := callerContext(*as)
		if err != nil {
			return err
		}
		svc, _, closer, err := openService()
		if err != nil {
			return err
		}
		defer closer()

		site, err := svc.CreateSite(ctx, sites.CreateSiteRequest{
			ShortName:   *name,
			Title:       *title,
			Description: *description,
			Preset:      *preset,
			Visibility:  sites.Visibility(*visibility),
		})
		if err != nil {
			return err
		}
		log.WithField("site", site.ShortName).Info("site created")
		fmt.Printf("%s\t%s\t%s\n", site.ShortName, site.Visibility, site.Title)
		return nil
	}
	return cmd
}

func newGetCommand() *Command {
	cmd := &Command{
		Name:        "get",
		Description: "Show one site",
		Flags:       flag.NewFlagSet("get", flag.ExitOnError),
	}

	as := cmd.Flags.String("as", "", "Acting user")
	name := cmd.Flags.String("name", "", "Site short name")
	asJSON := cmd.Flags.Bool("json", false, "Print the site as JSON")

	cmd.Run = func(args []string) error {
		cmd.Flags.Parse(args)
		ctx, err := callerContext(*as)
		if err != nil {
			return err
		}
		svc, _, closer, err := openService()
		if err != nil {
			return err
		}
		defer closer()

		site, err := svc.GetSite(ctx, *name)
		if err != nil {
			return err
		}
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(site)
		}
		fmt.Printf("Name:        %s\n", site.ShortName)
		fmt.Printf("Title:       %s\n", site.Title)
		fmt.Printf("Description: %s\n", site.Description)
		fmt.Printf("Preset:      %s\n", site.Preset)
		fmt.Printf("Visibility:  %s\n", site.Visibility)
		fmt.Printf("Created:     %s\n", site.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	}
	return cmd
}

func newListCommand() *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List sites visible to the acting user",
		Flags:       flag.NewFlagSet("list", flag.ExitOnError),
	}

	as := cmd.Flags.String("as", "", "Acting user")
	filter := cmd.Flags.String("filter", "", "Name or title prefix filter")
	preset := cmd.Flags.String("preset", "", "Exact preset filter")
	member := cmd.Flags.String("member", "", "Only sites where this authority holds a role")
	skip := cmd.Flags.Int("skip", 0, "Results to skip")
	max := cmd.Flags.Int("max", 0, "Page size, 0 for everything")

	cmd.Run = func(args []string) error {
		cmd.Flags.Parse(args)
		ctx, err := callerContext(*as)
		if err != nil {
			return err
		}
		svc, _, closer, err := openService()
		if err != nil {
			return err
		}
		defer closer()

		paging := query.PagingRequest{SkipCount: *skip, MaxItems: *max, RequestTotal: true}
		var page query.Page[*sites.Site]
		if *member != "" {
			page, err = svc.ListUserSites(ctx, *member, paging)
		} else {
			page, err = svc.ListSites(ctx, sites.SiteFilter{NamePrefix: *filter, Preset: *preset}, paging)
		}
		if err != nil {
			return err
		}

		for _, site := range page.Items {
			fmt.Printf("%s\t%s\t%s\n", site.ShortName, site.Visibility, site.Title)
		}
		if page.Total != nil {
			log.WithField("total", *page.Total).Debug("listing complete")
		}
		if page.HasMore {
			fmt.Fprintf(os.Stderr, "more results: rerun with -skip %d\n", *skip+len(page.Items))
		}
		return nil
	}
	return cmd
}

func newDeleteCommand() *Command {
	cmd := &Command{
		Name:        "delete",
		Description: "Move a site to the trash",
		Flags:       flag.NewFlagSet("delete", flag.ExitOnError),
	}

	as := cmd.Flags.String("as", "", "Acting user")
	name := cmd.Flags.String("name", "", "Site short name")

	cmd.Run = func(args []string) error {
		cmd.Flags.Parse(args)
		ctx, err := callerContext(*as)
		if err != nil {
			return err
		}
		svc, _, closer, err := openService()
		if err != nil {
			return err
		}
		defer closer()

		if err := svc.DeleteSite(ctx, *name); err != nil {
			return err
		}
		log.WithField("site", *name).Info("site moved to trash")
		return nil
	}
	return cmd
}

func newPurgeCommand() *Command {
	cmd := &Command{
		Name:        "purge",
		Description: "Permanently remove a trashed site, or all expired ones",
		Flags:       flag.NewFlagSet("purge", flag.ExitOnError),
	}

	as := cmd.Flags.String("as", "", "Acting user")
	name := cmd.Flags.String("name", "", "Site short name")
	expired := cmd.Flags.Bool("expired", false, "Purge every site past the trash retention instead")

	cmd.Run = func(args []string) error {
		cmd.Flags.Parse(args)
		ctx, err := callerContext(*as)
		if err != nil {
			return err
		}
		svc, cfg, closer, err := openService()
		if err != nil {
			return err
		}
		defer closer()

		if *expired {
			purged, err := svc.PurgeExpired(ctx, cfg.Sites.TrashRetention)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d site(s)\n", purged)
			return nil
		}
		if err := svc.PurgeSite(ctx, *name); err != nil {
			return err
		}
		log.WithField("site", *name).Info("site purged")
		return nil
	}
	return cmd
}
