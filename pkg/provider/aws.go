package provider

import (
	"fmt"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
	"github.com/rangeforge/rangeforge/pkg/lifecycle"
	"github.com/rangeforge/rangeforge/pkg/synth"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

// awsRequiredFields are the credential fields the AWS driver needs.
var awsRequiredFields = []string{
	vault.FieldAWSAccessKeyID,
	vault.FieldAWSSecretAccessKey,
}

// awsInstanceTypes maps the provider-neutral size classes to instance types.
var awsInstanceTypes = map[string]string{
	"small":  "t3.small",
	"medium": "t3.medium",
	"large":  "t3.large",
	"xlarge": "t3.xlarge",
}

// awsAMIAliases maps well-known OS identifiers to SSM public parameter
// aliases, which the engine resolves to a concrete AMI per region. Unknown
// identifiers pass through unchanged so custom AMI IDs keep working.
var awsAMIAliases = map[string]string{
	"ubuntu-22.04": "resolve:ssm:/aws/service/canonical/ubuntu/server/22.04/stable/current/amd64/hvm/ebs-gp2/ami-id",
	"ubuntu-24.04": "resolve:ssm:/aws/service/canonical/ubuntu/server/24.04/stable/current/amd64/hvm/ebs-gp2/ami-id",
	"debian-12":    "resolve:ssm:/aws/service/debian/release/12/latest/amd64",
	"windows-2022": "resolve:ssm:/aws/service/ami-windows-latest/Windows_Server-2022-English-Full-Base",
}

// AWSDriver implements the Driver contract for AWS.
type AWSDriver struct{}

// NewAWSDriver creates the AWS driver.
func NewAWSDriver() *AWSDriver {
	return &AWSDriver{}
}

// Name returns the provider identifier.
func (d *AWSDriver) Name() string {
	return "aws"
}

// HasSufficientCredentials reports whether both AWS key fields are present
// and non-empty.
func (d *AWSDriver) HasSufficientCredentials(secrets vault.Fields) bool {
	return hasFields(secrets, awsRequiredFields)
}

// ConfigurationValues returns the engine configuration for an AWS deploy.
// The key pair is tagged secret so the engine redacts it.
func (d *AWSDriver) ConfigurationValues(region string, secrets vault.Fields) (map[string]synth.ConfigValue, error) {
	if !d.HasSufficientCredentials(secrets) {
		return nil, insufficientCredentials(d.Name(), secrets, awsRequiredFields)
	}
	return map[string]synth.ConfigValue{
		"aws:region":    {Value: region},
		"aws:accessKey": {Value: secrets[vault.FieldAWSAccessKeyID], Secret: true},
		"aws:secretKey": {Value: secrets[vault.FieldAWSSecretAccessKey], Secret: true},
	}, nil
}

// EnvironmentCredentials returns the variables the engine's AWS plugin
// reads from the process environment.
func (d *AWSDriver) EnvironmentCredentials(secrets vault.Fields) (map[string]string, error) {
	if !d.HasSufficientCredentials(secrets) {
		return nil, insufficientCredentials(d.Name(), secrets, awsRequiredFields)
	}
	return map[string]string{
		"AWS_ACCESS_KEY_ID":     secrets[vault.FieldAWSAccessKeyID],
		"AWS_SECRET_ACCESS_KEY": secrets[vault.FieldAWSSecretAccessKey],
	}, nil
}

// InfrastructureProgram declares the blueprint's topology on AWS. Resources
// are declared in blueprint order and logical names derive only from the
// blueprint, so identical inputs always declare identical resources.
func (d *AWSDriver) InfrastructureProgram(bp *blueprint.Range, region string) synth.Program {
	return func(ctx synth.Context) error {
		keyID, err := ctx.RegisterResource("tls:privateKey", bp.Name+"-range-key", map[string]any{
			"algorithm": "ED25519",
		})
		if err != nil {
			return err
		}

		var vpcIDs, subnetIDs, hostIDs []any
		var jumpSubnet synth.ResourceID

		for _, vpc := range bp.VPCs {
			vpcID, err := ctx.RegisterResource("aws:ec2/vpc", vpc.Name, map[string]any{
				"cidr_block":           vpc.CIDR,
				"enable_dns_support":   true,
				"enable_dns_hostnames": true,
				"tags":                 rangeTags(bp.Name),
			})
			if err != nil {
				return err
			}
			vpcIDs = append(vpcIDs, vpcID)

			igwID, err := ctx.RegisterResource("aws:ec2/internetGateway", vpc.Name+"-igw", map[string]any{
				"vpc_id": vpcID,
				"tags":   rangeTags(bp.Name),
			})
			if err != nil {
				return err
			}

			for _, subnet := range vpc.Subnets {
				subnetID, err := ctx.RegisterResource("aws:ec2/subnet", vpc.Name+"-"+subnet.Name, map[string]any{
					"vpc_id":     vpcID,
					"cidr_block": subnet.CIDR,
					"gateway":    igwID,
					"tags":       rangeTags(bp.Name),
				})
				if err != nil {
					return err
				}
				subnetIDs = append(subnetIDs, subnetID)
				if jumpSubnet == "" {
					jumpSubnet = subnetID
				}

				for _, host := range subnet.Hosts {
					hostID, err := ctx.RegisterResource("aws:ec2/instance",
						vpc.Name+"-"+subnet.Name+"-"+host.Hostname, map[string]any{
							"subnet_id":     subnetID,
							"ami":           awsImage(host.OS),
							"instance_type": awsInstanceType(host.Size),
							"key":           keyID,
							"tags":          rangeTags(bp.Name),
						})
					if err != nil {
						return err
					}
					hostIDs = append(hostIDs, hostID)
				}
			}
		}

		jumpID, err := ctx.RegisterResource("aws:ec2/instance", bp.Name+"-jump", map[string]any{
			"subnet_id":                   jumpSubnet,
			"ami":                         awsImage("ubuntu-22.04"),
			"instance_type":               awsInstanceType("small"),
			"associate_public_ip_address": true,
			"key":                         keyID,
			"tags":                        rangeTags(bp.Name),
		})
		if err != nil {
			return err
		}
		eipID, err := ctx.RegisterResource("aws:ec2/eip", bp.Name+"-jump-eip", map[string]any{
			"instance": jumpID,
			"tags":     rangeTags(bp.Name),
		})
		if err != nil {
			return err
		}

		ctx.Export(lifecycle.OutputVPCIDs, vpcIDs)
		ctx.Export(lifecycle.OutputSubnetIDs, subnetIDs)
		ctx.Export(lifecycle.OutputHostIDs, hostIDs)
		ctx.Export(lifecycle.OutputJumpHostIP, synth.AttrRef{ID: eipID, Attr: "public_ip"})
		ctx.Export(lifecycle.OutputRangePrivateKey, synth.AttrRef{ID: keyID, Attr: "private_key_openssh"})
		return nil
	}
}

// awsImage resolves an OS identifier to an AMI reference.
func awsImage(os string) string {
	if alias, ok := awsAMIAliases[os]; ok {
		return alias
	}
	return os
}

// awsInstanceType resolves a size class to an instance type.
func awsInstanceType(size string) string {
	if typ, ok := awsInstanceTypes[size]; ok {
		return typ
	}
	return awsInstanceTypes["small"]
}

// rangeTags returns the common resource tags for a range.
func rangeTags(rangeName string) map[string]any {
	return map[string]any{
		"ManagedBy": "rangeforge",
		"Range":     rangeName,
	}
}

// hasFields reports whether every named field is present and non-empty.
func hasFields(secrets vault.Fields, required []string) bool {
	for _, field := range required {
		if secrets[field] == "" {
			return false
		}
	}
	return true
}

// insufficientCredentials builds the capability error listing what is
// missing, without echoing any field values.
func insufficientCredentials(provider string, secrets vault.Fields, required []string) error {
	missing := make([]string, 0, len(required))
	for _, field := range required {
		if secrets[field] == "" {
			missing = append(missing, field)
		}
	}
	return lifecycle.NewError(lifecycle.KindInsufficientCredentials,
		fmt.Sprintf("provider %s requires fields %v", provider, missing), nil).
		WithProvider(provider)
}
