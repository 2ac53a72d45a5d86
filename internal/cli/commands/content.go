package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soulnet-app/soulnet/internal/cli/client"
	"github.com/soulnet-app/soulnet/internal/router"
	"github.com/soulnet-app/soulnet/internal/session"
	"github.com/soulnet-app/soulnet/internal/upload"
)

const (
	uploadAttempts = 3
	uploadBackoff  = 500 * time.Millisecond
)

// uploadImage stores the file at path in folder, compressing large images
// and retrying transient backend failures.
func (a *App) uploadImage(ctx context.Context, path, folder string) (string, error) {
	f, err := upload.ReadFile(path)
	if err != nil {
		return "", err
	}
	return upload.WithRetry(ctx, uploadAttempts, uploadBackoff, func(ctx context.Context) (string, error) {
		return a.Uploader.UploadWithOptionalCompression(ctx, f, folder, upload.CompressOptions{})
	})
}

type profileOptions struct {
	name, bio, location, website string
	avatar, background           string
}

// NewProfileCmd creates the profile command
func NewProfileCmd(g *Globals) *cobra.Command {
	var opts profileOptions

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your profile",
		Long: `Show your profile, or edit it by passing any of the flags.
Only the flags you pass are changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runProfile(cmd.Context(), app, opts, changedFlags(cmd))
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Display name")
	cmd.Flags().StringVar(&opts.bio, "bio", "", "Short biography")
	cmd.Flags().StringVar(&opts.location, "location", "", "Location")
	cmd.Flags().StringVar(&opts.website, "website", "", "Website URL")
	cmd.Flags().StringVar(&opts.avatar, "avatar", "", "Image file to use as avatar")
	cmd.Flags().StringVar(&opts.background, "background", "", "Image file to use as profile background")

	return cmd
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := map[string]bool{}
	for _, name := range []string{"name", "bio", "location", "website", "avatar", "background", "title", "content", "cover"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			changed[name] = true
		}
	}
	return changed
}

func runProfile(ctx context.Context, app *App, opts profileOptions, changed map[string]bool) error {
	if len(changed) == 0 {
		_, err := app.Render(ctx, router.Profile)
		return err
	}
	if _, err := app.requireIdentity(app.Manager.State()); err != nil {
		return err
	}

	var update session.ProfileUpdate
	if changed["name"] {
		update.DisplayName = &opts.name
	}
	if changed["bio"] {
		update.Bio = &opts.bio
	}
	if changed["location"] {
		update.Location = &opts.location
	}
	if changed["website"] {
		update.Website = &opts.website
	}
	if changed["avatar"] {
		url, err := app.uploadImage(ctx, opts.avatar, upload.FolderAvatars)
		if err != nil {
			return app.Fail(err)
		}
		update.PhotoURL = &url
	}
	if changed["background"] {
		url, err := app.uploadImage(ctx, opts.background, upload.FolderAvatars)
		if err != nil {
			return app.Fail(err)
		}
		update.BackgroundImage = &url
	}

	if err := app.Manager.UpdateProfile(ctx, update); err != nil {
		return app.Fail(err)
	}
	return app.Confirm(ctx, "confirm.profile_saved", router.Profile)
}

type uploadOptions struct {
	folder   string
	compress bool
}

// NewUploadCmd creates the upload command
func NewUploadCmd(g *Globals) *cobra.Command {
	var opts uploadOptions

	cmd := &cobra.Command{
		Use:   "upload <image>...",
		Short: "Upload images and print their URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runUpload(cmd.Context(), app, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.folder, "folder", "temp", "Storage folder: avatars, posts or temp")
	cmd.Flags().BoolVar(&opts.compress, "compress", true, "Compress images larger than 1 MB")

	return cmd
}

func folderFor(name string) (string, error) {
	switch name {
	case "avatars", upload.FolderAvatars:
		return upload.FolderAvatars, nil
	case "posts", upload.FolderPosts:
		return upload.FolderPosts, nil
	case "temp", upload.FolderTemp:
		return upload.FolderTemp, nil
	default:
		return "", fmt.Errorf("unknown folder %q (use avatars, posts or temp)", name)
	}
}

func runUpload(ctx context.Context, app *App, paths []string, opts uploadOptions) error {
	if _, err := app.requireIdentity(app.Manager.State()); err != nil {
		return err
	}
	folder, err := folderFor(opts.folder)
	if err != nil {
		return err
	}

	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		f, err := upload.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	var urls []string
	if opts.compress {
		urls, err = app.Uploader.UploadMany(ctx, files, folder, upload.CompressOptions{})
	} else {
		for _, f := range files {
			var url string
			url, err = app.Uploader.Upload(ctx, f, folder)
			if err != nil {
				break
			}
			urls = append(urls, url)
		}
	}
	if err != nil {
		return app.Fail(err)
	}

	for i, url := range urls {
		fmt.Fprintf(app.Out, "%s\t%s\n", paths[i], url)
	}
	return app.Confirm(ctx, "confirm.upload", "")
}

type postOptions struct {
	title, content, cover string
	limit                 int
	mine                  bool
}

// NewPostCmd creates the post command group
func NewPostCmd(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Read and write posts",
	}

	var listOpts postOptions
	list := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List recent posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runPostList(cmd.Context(), app, listOpts)
		},
	}
	list.Flags().IntVar(&listOpts.limit, "limit", 20, "Maximum number of posts")
	list.Flags().BoolVar(&listOpts.mine, "mine", false, "Only your posts")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			_, err = app.Render(cmd.Context(), router.Build(router.Post, args[0]))
			return err
		},
	}

	var newOpts postOptions
	create := &cobra.Command{
		Use:   "new",
		Short: "Write a new post",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runPostNew(cmd.Context(), app, newOpts)
		},
	}
	addPostFlags(create, &newOpts)

	var editOpts postOptions
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runPostEdit(cmd.Context(), app, args[0], editOpts, changedFlags(cmd))
		},
	}
	addPostFlags(edit, &editOpts)

	cmd.AddCommand(list, show, create, edit)
	return cmd
}

func addPostFlags(cmd *cobra.Command, opts *postOptions) {
	cmd.Flags().StringVar(&opts.title, "title", "", "Title")
	cmd.Flags().StringVar(&opts.content, "content", "", "Body text")
	cmd.Flags().StringVar(&opts.cover, "cover", "", "Cover image file")
}

func runPostList(ctx context.Context, app *App, opts postOptions) error {
	author := ""
	if opts.mine {
		id, err := app.requireIdentity(app.Manager.State())
		if err != nil {
			return err
		}
		author = id.ID
	}

	posts, err := app.Posts.List(ctx, opts.limit, author)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Fprintln(app.Out, app.Tr.T("posts.none"))
		return nil
	}
	for _, p := range posts {
		fmt.Fprintf(app.Out, "%s\t%s\t%s\n", p.ID, p.Title, p.AuthorName)
	}
	return nil
}

func runPostNew(ctx context.Context, app *App, opts postOptions) error {
	// Form actions go through the route guard like page renders.
	res, err := app.guardOnly(ctx, router.NewPost)
	if err != nil || res != "" {
		return err
	}

	if err := app.ask("Title", "title", &opts.title); err != nil {
		return err
	}
	if err := app.ask("Content", "content", &opts.content); err != nil {
		return err
	}

	in := client.PostInput{Title: &opts.title, Content: &opts.content}
	if opts.cover != "" {
		url, err := app.uploadImage(ctx, opts.cover, upload.FolderPosts)
		if err != nil {
			return app.Fail(err)
		}
		in.CoverImageURL = &url
	}

	post, err := app.Posts.Create(ctx, in)
	if err != nil {
		return app.Fail(err)
	}
	return app.Confirm(ctx, "confirm.post_saved", router.Build(router.Post, post.ID))
}

func runPostEdit(ctx context.Context, app *App, id string, opts postOptions, changed map[string]bool) error {
	path := router.Build(router.EditPost, id)
	if len(changed) == 0 {
		_, err := app.Render(ctx, path)
		return err
	}
	res, err := app.guardOnly(ctx, path)
	if err != nil || res != "" {
		return err
	}

	var in client.PostInput
	if changed["title"] {
		in.Title = &opts.title
	}
	if changed["content"] {
		in.Content = &opts.content
	}
	if changed["cover"] {
		url, err := app.uploadImage(ctx, opts.cover, upload.FolderPosts)
		if err != nil {
			return app.Fail(err)
		}
		in.CoverImageURL = &url
	}

	post, err := app.Posts.Update(ctx, id, in)
	if err != nil {
		return app.Fail(err)
	}
	return app.Confirm(ctx, "confirm.post_saved", router.Build(router.Post, post.ID))
}
