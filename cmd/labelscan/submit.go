package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/services"
	"github.com/spf13/cobra"
)

type submitOptions struct {
	brand   string
	class   string
	alcohol string
	net     string
	unit    string
	yes     bool
}

func newSubmitCmd(a *app) *cobra.Command {
	opts := submitOptions{}

	cmd := &cobra.Command{
		Use:   "submit [flags] IMAGE...",
		Short: "Submit a product and its label images for verification",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.submit(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.brand, "brand", "", "brand name")
	f.StringVar(&opts.class, "class", "", "product class")
	f.StringVar(&opts.alcohol, "alcohol", "", "alcohol content, percent by volume")
	f.StringVar(&opts.net, "net", "", "net contents")
	f.StringVar(&opts.unit, "unit", string(models.DefaultUnit), "net contents unit (ml, fl oz, L)")
	f.BoolVarP(&opts.yes, "yes", "y", false, "submit without asking for confirmation")
	return cmd
}

func (a *app) submit(cmd *cobra.Command, opts submitOptions, paths []string) error {
	out := cmd.OutOrStdout()

	form := services.NewProductForm(a.cfg.Features.EnableWarningValidation)
	for _, edit := range []struct {
		field models.Field
		value string
	}{
		{models.FieldBrandName, opts.brand},
		{models.FieldProductClass, opts.class},
		{models.FieldAlcoholContent, opts.alcohol},
		{models.FieldNetContents, opts.net},
		{models.FieldNetContentsUnit, opts.unit},
	} {
		if !form.SetField(edit.field, edit.value) {
			return fmt.Errorf("invalid value %q for %s", edit.value, edit.field)
		}
	}
	if hint := form.Hint(models.FieldAlcoholContent); hint != "" {
		fmt.Fprintln(out, hint)
	}

	uploader := services.NewImageUploader(a.cfg.Upload, nil)
	files, err := openImages(paths)
	if err != nil {
		return err
	}
	res := uploader.AddFiles(files)
	for _, msg := range res.Messages {
		fmt.Fprintln(out, msg)
	}
	if res.Skipped > 0 {
		fmt.Fprintf(out, "Skipped %d file(s) that are not images.\n", res.Skipped)
	}
	form.ClearImageError(uploader.Count())

	payload, err := form.Submit(uploader.Count())
	if err != nil {
		return fmt.Errorf("%s (%s)", err, invalidFields(form.Errors()))
	}

	session, err := a.session(cmd)
	if err != nil {
		return err
	}
	if !session.Authenticated {
		return errors.New("not logged in, run labelscan login first")
	}

	flow := services.NewSubmissionFlow(a.backend, a.cfg.Polling, services.FlowOptions{History: a.history})
	defer flow.Close()

	if err := flow.Open(*payload, uploader.Images()); err != nil {
		return err
	}
	printReview(out, *payload, uploader.Images())

	if !opts.yes {
		answer := prompt(bufio.NewReader(cmd.InOrStdin()), out, "Submit? [y/N] ")
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			flow.Dismiss()
			fmt.Fprintln(out, "Cancelled")
			return nil
		}
	}

	unsubscribe := flow.Subscribe(func(snap models.SubmissionSnapshot) {
		if snap.State.IsActive() {
			fmt.Fprintf(out, "\rProcessing... %.0fs", snap.ElapsedSeconds)
		}
	})
	defer unsubscribe()

	if err := flow.Confirm(session.Token); err != nil {
		return err
	}
	snap, err := flow.Wait(cmd.Context())
	unsubscribe()
	fmt.Fprintln(out)
	if err != nil {
		return err
	}

	switch snap.State {
	case models.StateCompleted:
		fmt.Fprintf(out, "Completed in %.1fs\n", snap.ElapsedSeconds)
		return services.NewResultsView(snap.Result, snap.Payload, nil).Render(out)
	case models.StateTimedOut:
		return fmt.Errorf("timed out after %.0fs: %s", snap.ElapsedSeconds, snap.Message)
	default:
		return errors.New(snap.Message)
	}
}

// openImages describes each path as an upload. Content is only read for
// files the uploader accepts.
func openImages(paths []string) ([]services.UploadFile, error) {
	files := make([]services.UploadFile, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}

		head, err := readHead(path)
		if err != nil {
			return nil, err
		}

		p := path
		files = append(files, services.UploadFile{
			Name:        filepath.Base(path),
			ContentType: services.SniffContentType("", head),
			Size:        info.Size(),
			Open: func() (io.ReadCloser, error) {
				return os.Open(p)
			},
		})
	}
	return files, nil
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return head[:n], nil
}

func invalidFields(errs models.ValidationErrors) string {
	names := make([]string, 0, len(errs))
	for field, bad := range errs {
		if bad {
			names = append(names, string(field))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func printReview(w io.Writer, p models.ProductPayload, images []models.UploadedImage) {
	fmt.Fprintln(w, "Review submission")
	fmt.Fprintf(w, "  %-16s %s\n", "Brand Name:", p.BrandName)
	fmt.Fprintf(w, "  %-16s %s\n", "Product Class:", p.ProductClass)
	fmt.Fprintf(w, "  %-16s %g%%\n", "Alcohol Content:", p.AlcoholContent)
	fmt.Fprintf(w, "  %-16s %g %s\n", "Net Contents:", p.NetContents, p.NetContentsUnit)
	for i, img := range images {
		fmt.Fprintf(w, "  Image %d:         %s (%d bytes)\n", i+1, img.Name, img.Size)
	}
}
