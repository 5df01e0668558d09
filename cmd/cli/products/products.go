package products

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/crucial707/hci-inventory/cmd/cli/client"
	"github.com/crucial707/hci-inventory/cmd/cli/output"
	"github.com/crucial707/hci-inventory/internal/models"
	"github.com/spf13/cobra"
)

// ==========================
// Init Products
// ==========================
func InitProducts(rootCmd *cobra.Command) {
	productsCmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "Manage the product catalog",
	}

	productsCmd.AddCommand(
		listProductsCmd(),
		getProductCmd(),
		createProductCmd(),
		updateProductCmd(),
		deleteProductCmd(),
	)

	rootCmd.AddCommand(productsCmd)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func renderProducts(cmd *cobra.Command, products []models.Product) {
	rows := make([][]interface{}, 0, len(products))
	for _, p := range products {
		image := "-"
		if p.Image != nil {
			image = *p.Image
		}
		rows = append(rows, []interface{}{p.ID, p.Name, p.Category, fmt.Sprintf("%.2f", p.Price), p.Stock, image})
	}
	output.RenderTable(cmd.OutOrStdout(), []string{"ID", "Name", "Category", "Price", "Stock", "Image"}, rows)
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", arg)
	}
	return id, nil
}

// ==========================
// LIST
// ==========================
func listProductsCmd() *cobra.Command {
	var desc, asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/products"
			if desc {
				path += "?order=desc"
			}
			var products []models.Product
			if err := client.Do(http.MethodGet, path, "", nil, &products); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, products)
			}
			if len(products) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No products.")
				return nil
			}
			renderProducts(cmd, products)
			return nil
		},
	}

	cmd.Flags().BoolVar(&desc, "desc", false, "newest first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

// ==========================
// GET
// ==========================
func getProductCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var p models.Product
			if err := client.Do(http.MethodGet, "/products/"+strconv.Itoa(id), "", nil, &p); err != nil {
				return err
			}
			renderProducts(cmd, []models.Product{p})
			return nil
		},
	}
}

// productFlags are the editable fields shared by create and update.
type productFlags struct {
	name        string
	category    string
	description string
	price       float64
	stock       int
	image       string
}

func (f *productFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "product name")
	cmd.Flags().StringVar(&f.category, "category", "", "product category")
	cmd.Flags().StringVar(&f.description, "description", "", "product description")
	cmd.Flags().Float64Var(&f.price, "price", 0, "unit price")
	cmd.Flags().IntVar(&f.stock, "stock", 0, "units in stock")
	cmd.Flags().StringVar(&f.image, "image", "", "path to an image file to upload")
}

func (f *productFlags) form() map[string]string {
	return map[string]string{
		"name":        f.name,
		"category":    f.category,
		"description": f.description,
		"price":       strconv.FormatFloat(f.price, 'f', -1, 64),
		"stock":       strconv.Itoa(f.stock),
	}
}

// ==========================
// CREATE
// ==========================
func createProductCmd() *cobra.Command {
	var f productFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("price") {
				return errors.New("--price is required")
			}
			var p models.Product
			if err := client.DoMultipart(http.MethodPost, "/products", "", f.form(), f.image, &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created product %d.\n", p.ID)
			renderProducts(cmd, []models.Product{p})
			return nil
		},
	}

	f.bind(cmd)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

// ==========================
// UPDATE
// ==========================
func updateProductCmd() *cobra.Command {
	var f productFlags

	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Update a product",
		Long: `Update a product. Fields that are not given keep their current value;
the stored image is kept unless --image uploads a new one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			path := "/products/" + strconv.Itoa(id)

			// The API replaces every field, so start from the current record.
			var current models.Product
			if err := client.Do(http.MethodGet, path, "", nil, &current); err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("name") {
				f.name = current.Name
			}
			if !flags.Changed("category") {
				f.category = current.Category
			}
			if !flags.Changed("description") {
				f.description = current.Description
			}
			if !flags.Changed("price") {
				f.price = current.Price
			}
			if !flags.Changed("stock") {
				f.stock = current.Stock
			}

			var p models.Product
			if err := client.DoMultipart(http.MethodPut, path, "", f.form(), f.image, &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated product %d.\n", p.ID)
			renderProducts(cmd, []models.Product{p})
			return nil
		},
	}

	f.bind(cmd)
	return cmd
}

// ==========================
// DELETE
// ==========================
func deleteProductCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var p models.Product
			if err := client.Do(http.MethodDelete, "/products/"+strconv.Itoa(id), "", nil, &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted product %d (%s).\n", p.ID, p.Name)
			return nil
		},
	}
}
