package indexing

import (
	"fmt"
	"net/url"
)

// urlBuilder derives the public storefront urls from tenant and product identifiers
type urlBuilder struct {
	domain string
}

func (b urlBuilder) tenantBase(slug string) string {
	return fmt.Sprintf("https://%s.%s", slug, b.domain)
}

func (b urlBuilder) tenantHome(slug string) string {
	return b.tenantBase(slug) + "/"
}

func (b urlBuilder) tenantProducts(slug string) string {
	return b.tenantBase(slug) + "/products"
}

func (b urlBuilder) tenantSitemap(slug string) string {
	return b.tenantBase(slug) + "/sitemap.xml"
}

func (b urlBuilder) product(tenantSlug, productID, productSlug string) string {
	ref := productSlug
	if ref == "" {
		ref = productID
	}
	return b.tenantProducts(tenantSlug) + "/" + url.PathEscape(ref)
}

func (b urlBuilder) platformSitemap() string {
	return fmt.Sprintf("https://%s/sitemap.xml", b.domain)
}
