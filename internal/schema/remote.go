package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Open 按位置加载设备描述：http(s) 地址远程拉取，否则读本地文件
func Open(ctx context.Context, location string) (*Catalog, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return Fetch(ctx, resty.New(), location)
	}
	return Load(location)
}

// Fetch 从远程地址拉取设备描述（例如配置中心），失败自动重试
func Fetch(ctx context.Context, client *resty.Client, url string) (*Catalog, error) {
	client.
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/yaml, text/yaml, */*")

	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch devices from %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch devices from %s: status %d", url, resp.StatusCode())
	}
	return Parse(resp.Body())
}
